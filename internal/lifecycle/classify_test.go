package lifecycle

import (
	"testing"

	"keepsake/internal/store"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		declared string
		data     []byte
		wantType string
		wantCat  store.Category
	}{
		{"image/JPEG", nil, "image/jpeg", store.CategoryImage},
		{"video/mp4; codecs=avc1", nil, "video/mp4", store.CategoryVideo},
		{"application/pdf", nil, "application/pdf", store.CategoryOther},
		{"", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"), "image/gif", store.CategoryImage},
		{"application/octet-stream", []byte("plain words"), "text/plain", store.CategoryOther},
	}
	for _, tc := range cases {
		gotType, gotCat := classify(tc.declared, tc.data)
		if gotType != tc.wantType || gotCat != tc.wantCat {
			t.Errorf("classify(%q) = %q, %q; want %q, %q", tc.declared, gotType, gotCat, tc.wantType, tc.wantCat)
		}
	}
}
