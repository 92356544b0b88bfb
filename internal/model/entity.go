package model

import "time"

// Segment statuses
type SegmentStatus string

const (
	SegmentStatusDraft           SegmentStatus = "draft"
	SegmentStatusVoiceoverReady  SegmentStatus = "voiceover_ready"
	SegmentStatusImageReady      SegmentStatus = "image_ready"
	SegmentStatusVideoReady      SegmentStatus = "video_ready"
	SegmentStatusCombined        SegmentStatus = "combined"
	SegmentStatusVoiceoverFailed SegmentStatus = "voiceover_failed"
	SegmentStatusImageFailed     SegmentStatus = "image_failed"
	SegmentStatusVideoFailed     SegmentStatus = "video_failed"
	SegmentStatusCombineFailed   SegmentStatus = "combine_failed"
)

// Segment is one timed text chunk of a story with its produced media
type Segment struct {
	ID          string        `json:"id"`
	VideoID     string        `json:"videoId,omitempty"`
	Text        string        `json:"text,omitempty"`
	Index       int           `json:"index"`
	Status      SegmentStatus `json:"status,omitempty"`
	AudioURL    string        `json:"audioUrl,omitempty"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	VideoURL    string        `json:"videoUrl,omitempty"`
	CombinedURL string        `json:"combinedUrl,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Video statuses
type VideoStatus string

const (
	VideoStatusDraft        VideoStatus = "draft"
	VideoStatusConcatenated VideoStatus = "concatenated"
	VideoStatusScored       VideoStatus = "scored"
	VideoStatusFinal        VideoStatus = "final"
	VideoStatusConcatFailed VideoStatus = "concat_failed"
	VideoStatusMusicFailed  VideoStatus = "music_failed"
	VideoStatusFinalFailed  VideoStatus = "final_failed"
)

// Video is the parent record clips are concatenated and scored into
type Video struct {
	ID              string      `json:"id"`
	Title           string      `json:"title,omitempty"`
	Status          VideoStatus `json:"status,omitempty"`
	ConcatenatedURL string      `json:"concatenatedUrl,omitempty"`
	MusicURL        string      `json:"musicUrl,omitempty"`
	FinalURL        string      `json:"finalUrl,omitempty"`
	Error           string      `json:"error,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}
