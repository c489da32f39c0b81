package store

import (
	"fmt"
	"strings"
	"time"
)

// Manifest is the content document kept in the blob store next to a capsule's
// media. Retrieval feeds it to the enrichment chain.
type Manifest struct {
	CapsuleID   string          `json:"capsule_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Media       []ManifestEntry `json:"media"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ManifestEntry describes one media item in the manifest.
type ManifestEntry struct {
	Name        string   `json:"name"`
	Key         string   `json:"key"`
	Category    Category `json:"category"`
	ContentType string   `json:"content_type,omitempty"`
	Size        int64    `json:"size"`
}

// BuildManifest snapshots a capsule and its bundle.
func BuildManifest(c *Capsule, bundle *MediaBundle, now time.Time) Manifest {
	m := Manifest{
		CapsuleID:   c.ID,
		Title:       c.Title,
		Description: c.Description,
		Media:       []ManifestEntry{},
		UpdatedAt:   now.UTC(),
	}
	if bundle != nil {
		for _, item := range bundle.Items {
			m.Media = append(m.Media, ManifestEntry{
				Name:        item.Name,
				Key:         item.Key,
				Category:    item.Category,
				ContentType: item.ContentType,
				Size:        item.Size,
			})
		}
	}
	return m
}

// Document renders the manifest as plain text for the analyze stage.
func (m Manifest) Document() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", m.Title)
	if desc := strings.TrimSpace(m.Description); desc != "" {
		fmt.Fprintf(&b, "Description: %s\n", desc)
	}
	counts := map[Category]int{}
	for _, entry := range m.Media {
		counts[entry.Category]++
	}
	fmt.Fprintf(&b, "Media: %d images, %d videos, %d other\n",
		counts[CategoryImage], counts[CategoryVideo], counts[CategoryOther])
	for _, entry := range m.Media {
		fmt.Fprintf(&b, "- %s (%s, %d bytes)\n", entry.Name, entry.Category, entry.Size)
	}
	return strings.TrimRight(b.String(), "\n")
}
