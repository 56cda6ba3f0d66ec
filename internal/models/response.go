// Package models holds the JSON envelope every crowdcast endpoint answers
// with, plus the few payloads that exist only at the HTTP boundary.
package models

import (
	"time"

	"crowdcast.transitpulse.org/internal/clock"
)

// APIVersion is reported in every envelope.
const APIVersion = 1

type ResponseModel struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Data        any    `json:"data,omitempty"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
}

type EntryData struct {
	Entry any `json:"entry"`
}

type ListData struct {
	List          any  `json:"list"`
	LimitExceeded bool `json:"limitExceeded"`
}

// ResponseCurrentTime is the envelope timestamp in Unix milliseconds.
func ResponseCurrentTime(c clock.Clock) int64 {
	return c.NowUnixMilli()
}

func NewOKResponse(data any, c clock.Clock) ResponseModel {
	return ResponseModel{
		Code:        200,
		CurrentTime: ResponseCurrentTime(c),
		Data:        data,
		Text:        "OK",
		Version:     APIVersion,
	}
}

func NewEntryResponse(entry any, c clock.Clock) ResponseModel {
	return NewOKResponse(EntryData{Entry: entry}, c)
}

// NewListResponse wraps list. limitExceeded tells the client the list was
// truncated by its limit parameter.
func NewListResponse(list any, limitExceeded bool, c clock.Clock) ResponseModel {
	return NewOKResponse(ListData{List: list, LimitExceeded: limitExceeded}, c)
}

func NewErrorResponse(code int, text string, c clock.Clock) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: ResponseCurrentTime(c),
		Text:        text,
		Version:     APIVersion,
	}
}

type CurrentTimeData struct {
	Time         int64  `json:"time"`
	ReadableTime string `json:"readableTime"`
	// ServiceTime is the same instant in the agency time zone.
	ServiceTime string `json:"serviceTime"`
}

func NewCurrentTimeData(t time.Time, loc *time.Location) CurrentTimeData {
	if loc == nil {
		loc = time.UTC
	}
	return CurrentTimeData{
		Time:         t.UnixMilli(),
		ReadableTime: t.Format(time.RFC3339),
		ServiceTime:  t.In(loc).Format(time.RFC3339),
	}
}
