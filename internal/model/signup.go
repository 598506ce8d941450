package model

import "time"

// 通知方法
const (
	NotificationMethodBrevo      = "brevo"
	NotificationMethodSimulation = "localStorage_simulation"
)

// サインアップの保存先
const (
	SignupServiceBrevo = "brevo"
	SignupServiceLocal = "localStorage"
)

// EmailSignup はローンチ通知のメール登録を表す。
// Emailは小文字化して保存し、重複判定もこの値で行う。
type EmailSignup struct {
	Email              string     `json:"email"`
	Timestamp          time.Time  `json:"timestamp"`
	Source             string     `json:"source"`
	Notified           bool       `json:"notified"`
	NotifiedAt         *time.Time `json:"notifiedAt,omitempty"`
	NotificationMethod string     `json:"notificationMethod,omitempty"`
	Service            string     `json:"service,omitempty"`
	BrevoBackup        bool       `json:"brevoBackup,omitempty"`
}

// NotificationResult はドロップ開始通知の送信結果。
type NotificationResult struct {
	Count   int    `json:"count"`
	Service string `json:"service"`
}
