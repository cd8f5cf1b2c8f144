// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package sync

import (
	"net/http"
	"testing"
	"time"
)

func TestBuildConditional(t *testing.T) {
	fetched := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name          string
		fetchedAt     time.Time
		etag          string
		force         bool
		page          int
		wantModified  string
		wantNoneMatch string
	}{
		{
			name:          "first page with etag and timestamp",
			fetchedAt:     fetched,
			etag:          `"abc123"`,
			page:          1,
			wantModified:  "Sat, 14 Mar 2026 09:26:53 GMT",
			wantNoneMatch: `"abc123"`,
		},
		{
			name:         "etag omitted past page one",
			fetchedAt:    fetched,
			etag:         `"abc123"`,
			page:         2,
			wantModified: "Sat, 14 Mar 2026 09:26:53 GMT",
		},
		{
			name:      "force suppresses everything",
			fetchedAt: fetched,
			etag:      `"abc123"`,
			force:     true,
			page:      1,
		},
		{
			name:          "no prior fetch leaves timestamp out",
			etag:          `"abc123"`,
			page:          1,
			wantNoneMatch: `"abc123"`,
		},
		{
			name: "nothing known yields empty headers",
			page: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := BuildConditional(tt.fetchedAt, tt.etag, tt.force, tt.page)

			header := http.Header{}
			cond.Apply(header)
			if got := header.Get("If-Modified-Since"); got != tt.wantModified {
				t.Errorf("If-Modified-Since = %q, want %q", got, tt.wantModified)
			}
			if got := header.Get("If-None-Match"); got != tt.wantNoneMatch {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantNoneMatch)
			}

			wantZero := tt.wantModified == "" && tt.wantNoneMatch == ""
			if cond.IsZero() != wantZero {
				t.Errorf("IsZero() = %v, want %v", cond.IsZero(), wantZero)
			}
		})
	}
}
