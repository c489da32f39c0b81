package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	pollInterval   = 250 * time.Millisecond
	maxLineBytes   = 1024 * 1024
	initialLineBuf = 64 * 1024
)

// TailOptions controls a Tail call. A negative Offset returns the last Limit
// matching entries; otherwise reading starts at Offset. With Follow set and
// nothing new to return, Tail polls for up to Wait.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult carries the matching entries and the offset to resume from.
type TailResult struct {
	Entries []Entry
	Offset  int64
}

// Tail reads entries from the log file at path. A missing file yields an
// empty result rather than an error.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		result.Offset = 0
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	var entries []Entry
	var offset int64
	if opts.Offset < 0 {
		entries, offset, err = readLast(path, opts.Limit, opts.Filter)
	} else {
		start := opts.Offset
		if start > info.Size() {
			start = info.Size()
		}
		entries, offset, err = readForward(path, start, opts.Filter)
	}
	if err != nil {
		return result, err
	}
	result.Entries = entries
	result.Offset = offset

	if opts.Follow && opts.Wait > 0 && len(entries) == 0 {
		return waitForEntries(ctx, path, offset, opts.Wait, opts.Filter)
	}
	return result, nil
}

// readLast keeps a ring of the last limit matching entries.
func readLast(path string, limit int, filter Filter) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]Entry, limit)
	count, next := 0, 0
	offset, err := scanEntries(file, filter, func(e Entry) {
		ring[next] = e
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	entries := make([]Entry, count)
	if count == limit {
		for i := range count {
			entries[i] = ring[(next+i)%limit]
		}
	} else {
		copy(entries, ring[:count])
	}
	return entries, offset, nil
}

func readForward(path string, offset int64, filter Filter) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	var entries []Entry
	end, err := scanEntries(file, filter, func(e Entry) { entries = append(entries, e) })
	if err != nil {
		return nil, 0, err
	}
	return entries, end, nil
}

// scanEntries passes every matching line to emit and returns the offset just
// past the last complete line read.
func scanEntries(file *os.File, filter Filter, emit func(Entry)) (int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	reader := bufio.NewReaderSize(file, initialLineBuf)
	consumed := start
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// A partial trailing line is left for the next read.
			return consumed, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		text := line[:len(line)-1]
		if text == "" {
			continue
		}
		if entry := ParseEntry(text); filter.Match(entry) {
			emit(entry)
		}
	}
}

func waitForEntries(ctx context.Context, path string, offset int64, wait time.Duration, filter Filter) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		entries, next, err := readForward(path, offset, filter)
		if err != nil {
			return result, err
		}
		result.Offset = next
		offset = next
		if len(entries) > 0 {
			result.Entries = entries
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
