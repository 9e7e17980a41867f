// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestCustomHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &CustomHandler{Writer: &buf}

	e := &log.Entry{
		Level:     log.WarnLevel,
		Message:   "cache write failed",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Fields:    log.Fields{"key": "GET /", "generation": "v2"},
	}

	assert.NoError(t, h.HandleLog(e))
	assert.Equal(t, "2026-01-02 03:04:05 W cache write failed generation=v2 key=GET /\n", buf.String())
}

func TestInitLogger(t *testing.T) {
	t.Setenv("SHELLCACHE_LOG", "debug")
	InitLogger()

	l, ok := log.Log.(*log.Logger)
	if assert.True(t, ok) {
		assert.Equal(t, log.DebugLevel, l.Level)
		assert.IsType(t, &CustomHandler{}, l.Handler)
	}
}
