// Package filename builds filesystem-safe file and folder names for
// recording files from user-configurable templates
package filename

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/curtbushko/zoom-sync/internal/zoom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Namer renders filenames and folder names for recording files
type Namer interface {
	// FileName renders the filename template for one recording file
	FileName(recording zoom.Recording, file zoom.RecordingFile) string

	// FolderName renders the folder template for a recording
	FolderName(recording zoom.Recording) string

	// Sanitize strips characters that are invalid in file and folder names
	Sanitize(name string) string
}

// NamerOptions contains configuration options for the namer
type NamerOptions struct {
	// FilenameTemplate is the per-file template, e.g.
	// "{meeting_time} - {topic} - {rec_type} - {recording_id}.{file_extension}"
	FilenameTemplate string

	// FolderTemplate is the per-recording folder template, e.g.
	// "{topic} - {meeting_time}"
	FolderTemplate string

	// TimeFormat is the Go layout used for {meeting_time} (default "2006.01.02 - 15.04 MST")
	TimeFormat string

	// Location is the timezone meeting times are rendered in (default UTC)
	Location *time.Location
}

// namer is the concrete implementation of Namer
type namer struct {
	filenameTemplate string
	folderTemplate   string
	timeFormat       string
	location         *time.Location

	invalidCharsRegex   *regexp.Regexp
	multipleSpacesRegex *regexp.Regexp
}

// DefaultFilenameTemplate is used when the configuration does not set one
const DefaultFilenameTemplate = "{meeting_time} - {topic} - {rec_type} - {recording_id}.{file_extension}"

// DefaultFolderTemplate is used when the configuration does not set one
const DefaultFolderTemplate = "{topic} - {meeting_time}"

// DefaultTimeFormat renders meeting times sortable and timezone-tagged
const DefaultTimeFormat = "2006.01.02 - 15.04 MST"

// NewNamer creates a new Namer with the given options
func NewNamer(options NamerOptions) Namer {
	filenameTemplate := options.FilenameTemplate
	if filenameTemplate == "" {
		filenameTemplate = DefaultFilenameTemplate
	}

	folderTemplate := options.FolderTemplate
	if folderTemplate == "" {
		folderTemplate = DefaultFolderTemplate
	}

	timeFormat := options.TimeFormat
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}

	location := options.Location
	if location == nil {
		location = time.UTC
	}

	return &namer{
		filenameTemplate:    filenameTemplate,
		folderTemplate:      folderTemplate,
		timeFormat:          timeFormat,
		location:            location,
		invalidCharsRegex:   regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`),
		multipleSpacesRegex: regexp.MustCompile(`\s+`),
	}
}

// FileName renders the filename template for one recording file
func (n *namer) FileName(recording zoom.Recording, file zoom.RecordingFile) string {
	meetingTime := recording.StartTime.In(n.location)

	replacements := n.recordingReplacements(recording, meetingTime)
	replacements["{rec_type}"] = file.EffectiveRecordingType()
	replacements["{recording_id}"] = file.ID
	replacements["{file_extension}"] = n.fileExtension(file)

	return n.render(n.filenameTemplate, replacements)
}

// FolderName renders the folder template for a recording
func (n *namer) FolderName(recording zoom.Recording) string {
	meetingTime := recording.StartTime.In(n.location)
	return n.render(n.folderTemplate, n.recordingReplacements(recording, meetingTime))
}

// recordingReplacements builds the placeholder values shared by both templates
func (n *namer) recordingReplacements(recording zoom.Recording, meetingTime time.Time) map[string]string {
	return map[string]string{
		"{topic}":        n.Sanitize(recording.Topic),
		"{meeting_time}": meetingTime.Format(n.timeFormat),
		"{meeting_id}":   fmt.Sprintf("%d", recording.ID),
		"{year}":         meetingTime.Format("2006"),
		"{month}":        meetingTime.Format("01"),
		"{day}":          meetingTime.Format("02"),
	}
}

// render substitutes placeholders and sanitizes the final result so a
// malicious placeholder value can never escape into path separators
func (n *namer) render(template string, replacements map[string]string) string {
	result := template
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return n.Sanitize(result)
}

// Sanitize strips invalid filesystem characters and collapses whitespace
func (n *namer) Sanitize(name string) string {
	normalized := n.normalizeUnicode(name)
	cleaned := n.invalidCharsRegex.ReplaceAllString(normalized, "")
	cleaned = n.multipleSpacesRegex.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	// Trailing dots confuse Windows and some object stores
	cleaned = strings.TrimRight(cleaned, ".")
	if cleaned == "" {
		return "untitled"
	}
	return cleaned
}

// normalizeUnicode removes diacritics and drops characters that cannot be
// represented in plain ASCII filenames
func (n *namer) normalizeUnicode(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}

	var cleaned strings.Builder
	for _, r := range result {
		if r <= unicode.MaxASCII && unicode.IsPrint(r) {
			cleaned.WriteRune(r)
		} else if unicode.IsSpace(r) {
			cleaned.WriteRune(' ')
		}
	}

	return cleaned.String()
}

// fileExtension derives the extension for a recording file, preferring the
// extension the API reports over the file type mapping
func (n *namer) fileExtension(file zoom.RecordingFile) string {
	if file.FileExtension != "" {
		return strings.ToLower(file.FileExtension)
	}

	switch strings.ToLower(file.FileType) {
	case "mp4":
		return "mp4"
	case "m4a":
		return "m4a"
	case "timeline", "json":
		return "json"
	case "transcript", "cc":
		return "vtt"
	case "chat":
		return "txt"
	case "csv":
		return "csv"
	default:
		return "bin"
	}
}
