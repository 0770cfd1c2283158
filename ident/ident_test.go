package ident

import "testing"

func TestShortIDFullIDRoundTrip(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name    string
		kind    string
		shortID string
	}{
		{name: "submission", kind: KindSubmission, shortID: "abc123"},
		{name: "comment", kind: KindComment, shortID: "xyz789"},
		{name: "short base36", kind: KindSubmission, shortID: "9"},
		{name: "long base36", kind: KindComment, shortID: "zzzzzzzzzzzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full := FullID(reg[tt.kind], tt.shortID)
			if got := ShortID(full); got != tt.shortID {
				t.Errorf("ShortID(FullID()) = %q, want %q", got, tt.shortID)
			}
		})
	}
}

func TestShortIDSplitsOnLastUnderscore(t *testing.T) {
	if got := ShortID("t3_abc123"); got != "abc123" {
		t.Errorf("ShortID(t3_abc123) = %q, want abc123", got)
	}
	// A pathological prefix with underscores still yields the last segment.
	if got := ShortID("a_b_c"); got != "c" {
		t.Errorf("ShortID(a_b_c) = %q, want c", got)
	}
}

func TestResolveAfter(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name    string
		kind    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "full submission id used as-is",
			kind:  KindSubmission,
			input: "t3_abc123",
			want:  "t3_abc123",
		},
		{
			name:  "bare short id gets the stream kind prefix",
			kind:  KindSubmission,
			input: "abc123",
			want:  "t3_abc123",
		},
		{
			name:  "bare short id for comment stream",
			kind:  KindComment,
			input: "def456",
			want:  "t1_def456",
		},
		{
			name:  "submission url",
			kind:  KindSubmission,
			input: "https://www.reddit.com/r/golang/comments/abc123/some_title/",
			want:  "t3_abc123",
		},
		{
			name:  "comment url",
			kind:  KindComment,
			input: "https://www.reddit.com/r/golang/comments/abc123/some_title/def456",
			want:  "t1_def456",
		},
		{
			name:    "garbage input",
			kind:    KindSubmission,
			input:   "not an id at all!",
			wantErr: true,
		},
		{
			name:    "url without comments segment",
			kind:    KindSubmission,
			input:   "https://www.reddit.com/r/golang/new/",
			wantErr: true,
		},
		{
			name:    "submission url on comment stream missing comment id",
			kind:    KindComment,
			input:   "https://www.reddit.com/r/golang/comments/abc123/",
			wantErr: true,
		},
		{
			name:    "unknown kind",
			kind:    "message",
			input:   "abc123",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAfter(reg, tt.kind, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveAfter(%q) = %q, want error", tt.input, got)
				}
				if !IsInvalidIdentifier(err) {
					t.Errorf("Expected InvalidIdentifierError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveAfter(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ResolveAfter(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSubmissionIDFromPermalink(t *testing.T) {
	got, err := SubmissionIDFromPermalink("https://www.reddit.com/r/golang/comments/abc123/title/def456/")
	if err != nil {
		t.Fatalf("SubmissionIDFromPermalink returned error: %v", err)
	}
	if got != "abc123" {
		t.Errorf("SubmissionIDFromPermalink = %q, want abc123", got)
	}
}
