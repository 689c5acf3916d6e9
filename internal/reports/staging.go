package reports

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// FileInput is a locally-selected file handed to the staging area
type FileInput struct {
	Name    string
	Size    int64
	Content []byte
}

// StagedFile is a proof artifact held in memory prior to any upload.
// LocalID identifies the file within the staging area only; the storage
// path is assigned later by the committer.
type StagedFile struct {
	LocalID    string     `json:"local_id"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	Kind       ProofKind  `json:"kind"`
	Content    []byte     `json:"-"`
	Geotagged  *bool      `json:"geotagged,omitempty"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// Staging accumulates selected proof files for one in-progress draft.
// No network or validation side effects happen here.
type Staging struct {
	mu       sync.Mutex
	files    []*StagedFile
	inFlight atomic.Bool
}

// NewStaging creates an empty staging area
func NewStaging() *Staging {
	return &Staging{}
}

// AddFiles appends one staged file per input, tagged with the given kind.
// Photos get a best-effort geotag flag and capture timestamp; detection
// failure never blocks staging.
func (s *Staging) AddFiles(files []FileInput, kind ProofKind) []*StagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]*StagedFile, 0, len(files))
	for _, f := range files {
		staged := &StagedFile{
			LocalID: uuid.NewString(),
			Name:    f.Name,
			Size:    f.Size,
			Kind:    kind,
			Content: f.Content,
		}
		if kind == ProofKindPhoto {
			geotagged := detectGeotag(f.Content)
			now := time.Now()
			staged.Geotagged = &geotagged
			staged.CapturedAt = &now
		}
		s.files = append(s.files, staged)
		added = append(added, staged)
	}
	return added
}

// RemoveFile removes a staged file by local ID. Removing an absent ID is
// a no-op.
func (s *Staging) RemoveFile(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.files {
		if f.LocalID == localID {
			s.files = append(s.files[:i], s.files[i+1:]...)
			return
		}
	}
}

// Files returns a snapshot of the staged files in insertion order
func (s *Staging) Files() []*StagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]*StagedFile, len(s.files))
	copy(snapshot, s.files)
	return snapshot
}

// Count returns the number of staged files
func (s *Staging) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// CanSubmit reports whether the staging area holds at least one file
func (s *Staging) CanSubmit() bool {
	return s.Count() > 0
}

// BeginSubmission marks this staging area as having a submission in
// flight. It returns false when one is already running, so the same
// draft cannot be committed twice concurrently. Independent drafts each
// have their own staging area and are never serialized against each
// other.
func (s *Staging) BeginSubmission() bool {
	return s.inFlight.CompareAndSwap(false, true)
}

// EndSubmission clears the in-flight mark
func (s *Staging) EndSubmission() {
	s.inFlight.Store(false)
}

// Clear drops all staged files
func (s *Staging) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = nil
}

var (
	jpegMagic  = []byte{0xFF, 0xD8}
	exifMarker = []byte("Exif\x00\x00")
	// GPS IFD pointer tag (0x8825) in both byte orders
	gpsTagLE = []byte{0x25, 0x88}
	gpsTagBE = []byte{0x88, 0x25}
)

// detectGeotag scans JPEG bytes for an EXIF GPS IFD tag. It is a cheap
// heuristic, not an EXIF parser; anything unrecognized counts as untagged.
func detectGeotag(content []byte) bool {
	if !bytes.HasPrefix(content, jpegMagic) {
		return false
	}
	// Limit the scan to the header region where EXIF lives
	header := content
	if len(header) > 64*1024 {
		header = header[:64*1024]
	}
	idx := bytes.Index(header, exifMarker)
	if idx < 0 {
		return false
	}
	exif := header[idx:]
	return bytes.Contains(exif, gpsTagLE) || bytes.Contains(exif, gpsTagBE)
}
