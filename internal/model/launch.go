package model

import "time"

// LaunchPhase はローンチの3つの時間帯を表す。
type LaunchPhase string

const (
	// PhasePreLaunch はドロップ開始前。
	PhasePreLaunch LaunchPhase = "pre_launch"
	// PhaseLiveDrop はドロップ期間中。
	PhaseLiveDrop LaunchPhase = "live_drop"
	// PhaseDropEnded はドロップ終了後。
	PhaseDropEnded LaunchPhase = "drop_ended"
)

// LaunchTimes は保存されたローンチ時刻とドロップ終了時刻。
// 未設定の場合はnil。
type LaunchTimes struct {
	LaunchTime  *time.Time `json:"launchTime"`
	DropEndTime *time.Time `json:"dropEndTime"`
}

// PhaseChange はフェーズ遷移イベント。
type PhaseChange struct {
	Phase       LaunchPhase `json:"phase"`
	Previous    LaunchPhase `json:"previous"`
	LaunchTime  *time.Time  `json:"launchTime"`
	DropEndTime *time.Time  `json:"dropEndTime"`
}

// LaunchStatus はローンチシステムの状態。
// TimeUntil* はミリ秒単位で、過ぎている場合は負の値になる。
type LaunchStatus struct {
	CurrentPhase     LaunchPhase `json:"currentPhase"`
	LaunchTime       *time.Time  `json:"launchTime"`
	DropEndTime      *time.Time  `json:"dropEndTime"`
	EmailSignups     int         `json:"emailSignups"`
	TimeUntilLaunch  *int64      `json:"timeUntilLaunch"`
	TimeUntilDropEnd *int64      `json:"timeUntilDropEnd"`
}

// Countdown はカウントダウン表示用の残り時間。
type Countdown struct {
	Phase   LaunchPhase `json:"phase"`
	Title   string      `json:"title"`
	Target  time.Time   `json:"target"`
	Days    int         `json:"days"`
	Hours   int         `json:"hours"`
	Minutes int         `json:"minutes"`
	Seconds int         `json:"seconds"`
}
