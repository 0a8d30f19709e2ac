// Package zoom defines data structures for Zoom Cloud Recording API
package zoom

import (
	"time"
)

// timelineFileType marks files whose recording_type field is unreliable;
// the file_type itself is used as the recording type instead.
const timelineFileType = "TIMELINE"

// RecordingFile represents a single recording file within a meeting recording
type RecordingFile struct {
	ID             string     `json:"id"`
	MeetingID      string     `json:"meeting_id"`
	RecordingStart time.Time  `json:"recording_start"`
	RecordingEnd   time.Time  `json:"recording_end"`
	FileType       string     `json:"file_type"`
	FileExtension  string     `json:"file_extension,omitempty"`
	FileSize       int64      `json:"file_size"`
	DownloadURL    string     `json:"download_url"`
	PlayURL        string     `json:"play_url,omitempty"`
	Status         string     `json:"status"`
	RecordingType  string     `json:"recording_type,omitempty"`
	DeletedTime    *time.Time `json:"deleted_time,omitempty"`
}

// EffectiveRecordingType derives the recording type used for naming.
// An empty file_type means the recording never finished processing.
func (f RecordingFile) EffectiveRecordingType() string {
	switch {
	case f.FileType == "":
		return "incomplete"
	case f.FileType == timelineFileType:
		return f.FileType
	default:
		return f.RecordingType
	}
}

// SizeVerifiable reports whether the file carries a meaningful byte count.
// Caption and timeline files report size 0 and are exempt from verification.
func (f RecordingFile) SizeVerifiable() bool {
	return f.FileSize > 0
}

// Recording represents a meeting or webinar recording with all associated files
type Recording struct {
	UUID           string          `json:"uuid"`
	ID             int64           `json:"id"`
	AccountID      string          `json:"account_id"`
	HostID         string          `json:"host_id"`
	Topic          string          `json:"topic"`
	Type           int             `json:"type"`
	StartTime      time.Time       `json:"start_time"`
	Duration       int             `json:"duration"`
	TotalSize      int64           `json:"total_size"`
	RecordingCount int             `json:"recording_count"`
	RecordingFiles []RecordingFile `json:"recording_files"`

	// HostEmail is filled in client-side when listing trash across users
	HostEmail string `json:"-"`
}

// ListRecordingsResponse represents the response from the list recordings API endpoint
type ListRecordingsResponse struct {
	From          string      `json:"from"`
	To            string      `json:"to"`
	PageCount     int         `json:"page_count"`
	PageSize      int         `json:"page_size"`
	TotalRecords  int         `json:"total_records"`
	NextPageToken string      `json:"next_page_token,omitempty"`
	Meetings      []Recording `json:"meetings"`
}

// User represents a Zoom user account
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Status    string `json:"status"`
}

// DisplayName returns a human readable identifier for log output
func (u User) DisplayName() string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName + " - " + u.Email
	}
	return u.Email
}

// ListUsersResponse represents the response from the list users API endpoint
type ListUsersResponse struct {
	PageCount    int    `json:"page_count"`
	PageNumber   int    `json:"page_number"`
	PageSize     int    `json:"page_size"`
	TotalRecords int    `json:"total_records"`
	Users        []User `json:"users"`
}
