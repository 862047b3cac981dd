// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package timeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
)

const validSong = `
songId: arirang
title: Arirang
artist: Traditional
bpm: 96
duration: 180
sections:
  - {label: intro, start: 0}
  - {label: verse1, start: 12.5}
  - {label: break, start: 60}
  - {label: verse2, start: 75}
segments:
  verse1: {start: 12.5, end: 60}
verse1:
  - {time: 13.0, actionCode: 1, actionName: clap}
  - {time: 15.5, actionCode: 2, actionName: step}
verse2:
  1:
    - {time: 76.0, actionCode: 1, actionName: clap}
  2:
    - {time: 76.0, actionCode: 4, actionName: twist}
  3:
    - {time: 76.0, actionCode: 7, actionName: jump}
    - {time: 77.0, actionCode: 8, actionName: spin}
`

func writeSong(t *testing.T, dir, id, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(body), 0o600))
}

func TestCatalog_Build(t *testing.T) {
	dir := t.TempDir()
	writeSong(t, dir, "arirang", validSong)
	c := NewCatalog(dir, 0)
	defer func() { _ = c.Close() }()

	d, err := c.Build(context.Background(), "arirang")
	require.NoError(t, err)
	assert.Equal(t, "arirang", d.SongID)
	assert.Equal(t, 96.0, d.BPM)
	assert.Len(t, d.Verse1, 2)
	assert.Len(t, d.Verse2[model.LevelHard], 2)
	assert.Equal(t, 12.5, d.Segments["verse1"].Start)
	assert.Empty(t, d.SessionID)

	// descriptors are independent copies
	d.Verse1[0].ActionCode = 99
	again, err := c.Build(context.Background(), "arirang")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Verse1[0].ActionCode)
}

func TestCatalog_UnknownSong(t *testing.T) {
	c := NewCatalog(t.TempDir(), 0)
	defer func() { _ = c.Close() }()

	for _, id := range []string{"missing", "../etc/passwd", "", "a/b"} {
		_, err := c.Build(context.Background(), id)
		assert.ErrorIs(t, err, ports.ErrUnknownSong, id)
	}
}

func TestCatalog_RejectsInvalidSongs(t *testing.T) {
	cases := map[string]string{
		"unordered":    strings.Replace(validSong, "time: 15.5", "time: 12.0", 1),
		"missinglevel": strings.Replace(validSong, "  3:\n    - {time: 76.0, actionCode: 7, actionName: jump}\n    - {time: 77.0, actionCode: 8, actionName: spin}\n", "", 1),
		"unknownkey":   validSong + "tempo: fast\n",
		"wrongid":      validSong,
	}
	dir := t.TempDir()
	for id, body := range cases {
		if id != "wrongid" {
			body = strings.Replace(body, "songId: arirang", "songId: "+id, 1)
		}
		writeSong(t, dir, id, body)
	}
	c := NewCatalog(dir, 0)
	defer func() { _ = c.Close() }()

	for id := range cases {
		_, err := c.Build(context.Background(), id)
		require.Error(t, err, id)
		assert.NotErrorIs(t, err, ports.ErrUnknownSong, id)
	}

	ids, err := c.Load(context.Background())
	require.Error(t, err)
	assert.Empty(t, ids)
}

func TestCatalog_LoadListsValidSongs(t *testing.T) {
	dir := t.TempDir()
	writeSong(t, dir, "arirang", validSong)
	writeSong(t, dir, "blues", strings.Replace(validSong, "songId: arirang", "songId: blues", 1))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("notes"), 0o600))

	c := NewCatalog(dir, 0)
	defer func() { _ = c.Close() }()
	ids, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"arirang", "blues"}, ids)
}

func TestCatalog_SongIDDefaultsToFileName(t *testing.T) {
	dir := t.TempDir()
	writeSong(t, dir, "nameless", strings.Replace(validSong, "songId: arirang\n", "", 1))
	c := NewCatalog(dir, 0)
	defer func() { _ = c.Close() }()

	d, err := c.Build(context.Background(), "nameless")
	require.NoError(t, err)
	assert.Equal(t, "nameless", d.SongID)
}

func TestCatalog_WatchReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	writeSong(t, dir, "arirang", validSong)
	c := NewCatalog(dir, time.Hour)
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx))

	d, err := c.Build(ctx, "arirang")
	require.NoError(t, err)
	require.Equal(t, 96.0, d.BPM)

	writeSong(t, dir, "arirang", strings.Replace(validSong, "bpm: 96", "bpm: 120", 1))
	require.Eventually(t, func() bool {
		d, err := c.Build(ctx, "arirang")
		return err == nil && d.BPM == 120
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "arirang.yaml")))
	require.Eventually(t, func() bool {
		_, err := c.Build(ctx, "arirang")
		return err != nil
	}, 3*time.Second, 20*time.Millisecond)
}
