package web

import (
	"sync/atomic"
	"time"

	"pifan/internal/fancontrol"
)

// FanStatus is implemented by *fancontrol.Service.
type FanStatus interface {
	Snapshot() fancontrol.Snapshot
}

type Status struct {
	startUnixNano int64
	fan           FanStatus
	static        atomic.Value // map[string]any
}

func NewStatus(fan FanStatus) *Status {
	s := &Status{fan: fan}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.static.Store(map[string]any{})
	return s
}

// SetStatic records configuration values shown alongside the live state.
func (s *Status) SetStatic(info map[string]any) {
	cp := make(map[string]any, len(info))
	for k, v := range info {
		cp[k] = v
	}
	s.static.Store(cp)
}

type StatusSnapshot struct {
	Service   string              `json:"service"`
	NowUTC    string              `json:"now_utc"`
	UptimeSec int64               `json:"uptime_sec"`
	Config    map[string]any      `json:"config"`
	Fan       fancontrol.Snapshot `json:"fan"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	snap := StatusSnapshot{
		Service:   "pifan",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Config:    s.static.Load().(map[string]any),
	}
	if s.fan != nil {
		snap.Fan = s.fan.Snapshot()
	}
	return snap
}
