// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package timeline loads song choreography files and turns them into
// session descriptors.
package timeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// Song is the on-disk shape of one <songId>.yaml file.
type Song struct {
	SongID    string                        `yaml:"songId"`
	Title     string                        `yaml:"title"`
	Artist    string                        `yaml:"artist"`
	AudioURL  string                        `yaml:"audioUrl"`
	VideoURLs map[string]string             `yaml:"videoUrls"`
	BPM       float64                       `yaml:"bpm"`
	Duration  float64                       `yaml:"duration"`
	Sections  []model.Section               `yaml:"sections"`
	Segments  map[string]model.SegmentRange `yaml:"segments"`
	Verse1    model.Timeline                `yaml:"verse1"`
	Verse2    map[int]model.Timeline        `yaml:"verse2"`
}

var songIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidSongID reports whether id can name a catalog file.
func ValidSongID(id string) bool {
	return songIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// ParseSong decodes a song file strictly; unknown keys are errors.
func ParseSong(r io.Reader) (*Song, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Song
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty song file")
		}
		return nil, fmt.Errorf("parse song: %w", err)
	}
	return &s, nil
}

// Validate checks the song carries every timeline a session may need.
func (s *Song) Validate() error {
	if !ValidSongID(s.SongID) {
		return fmt.Errorf("invalid songId %q", s.SongID)
	}
	if s.BPM < 0 {
		return fmt.Errorf("song %s: negative bpm", s.SongID)
	}
	if s.Duration < 0 {
		return fmt.Errorf("song %s: negative duration", s.SongID)
	}
	for label, r := range s.Segments {
		if r.End < r.Start {
			return fmt.Errorf("song %s: segment %s ends before it starts", s.SongID, label)
		}
	}
	if err := s.descriptor().Validate(); err != nil {
		return fmt.Errorf("song %s: %w", s.SongID, err)
	}
	return nil
}

// descriptor converts the song into a session descriptor without session
// identity. The result shares no memory with s.
func (s *Song) descriptor() *model.SessionDescriptor {
	d := &model.SessionDescriptor{
		SongID:     s.SongID,
		SongTitle:  s.Title,
		SongArtist: s.Artist,
		AudioURL:   s.AudioURL,
		VideoURLs:  s.VideoURLs,
		BPM:        s.BPM,
		Duration:   s.Duration,
		Sections:   s.Sections,
		Segments:   s.Segments,
		Verse1:     s.Verse1,
		Verse2:     s.Verse2,
	}
	return d.Clone()
}
