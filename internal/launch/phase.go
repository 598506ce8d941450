// Package launch はドロップのローンチフェーズ管理を提供する。
// フェーズは保存済みのローンチ時刻・ドロップ終了時刻と現在時刻から導出され、
// 定期チェックで遷移を検知してリスナーへ通知する。
package launch

import (
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// カウントダウンの見出し
const (
	TitleDynastyBegins = "DYNASTY BEGINS IN"
	TitleDropEnds      = "DROP ENDS IN"
)

// PhaseAt はローンチ時刻・ドロップ終了時刻・現在時刻からフェーズを求める。
// ローンチ時刻が未設定、または現在時刻がローンチ前であればpre_launch、
// ローンチ時刻以降かつドロップ終了前であればlive_drop、それ以外はdrop_ended。
// ドロップ終了時刻が未設定でローンチ済みの場合はdrop_endedとみなす。
func PhaseAt(launchTime, dropEndTime *time.Time, now time.Time) model.LaunchPhase {
	if launchTime == nil || now.Before(*launchTime) {
		return model.PhasePreLaunch
	}
	if dropEndTime != nil && now.Before(*dropEndTime) {
		return model.PhaseLiveDrop
	}
	return model.PhaseDropEnded
}

// CountdownAt は現在のフェーズに応じたカウントダウンを返す。
// pre_launchではローンチ時刻まで、live_dropではドロップ終了時刻までの残り時間。
// 対象時刻が未設定、または残り時間が0以下の場合はnilを返す。
func CountdownAt(times model.LaunchTimes, now time.Time) *model.Countdown {
	phase := PhaseAt(times.LaunchTime, times.DropEndTime, now)

	var target *time.Time
	var title string
	switch phase {
	case model.PhasePreLaunch:
		target, title = times.LaunchTime, TitleDynastyBegins
	case model.PhaseLiveDrop:
		target, title = times.DropEndTime, TitleDropEnds
	default:
		return nil
	}
	if target == nil {
		return nil
	}

	left := target.Sub(now)
	if left <= 0 {
		return nil
	}

	days, hours, minutes, seconds := splitDuration(left)
	return &model.Countdown{
		Phase:   phase,
		Title:   title,
		Target:  *target,
		Days:    days,
		Hours:   hours,
		Minutes: minutes,
		Seconds: seconds,
	}
}

// splitDuration は残り時間を日・時・分・秒に分解する（端数切り捨て）。
func splitDuration(d time.Duration) (days, hours, minutes, seconds int) {
	const day = 24 * time.Hour
	days = int(d / day)
	hours = int((d % day) / time.Hour)
	minutes = int((d % time.Hour) / time.Minute)
	seconds = int((d % time.Minute) / time.Second)
	return
}
