// Package main provides localization for the framecue CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Lifecycle
		"Interrupted, shutting down...":  "中断されました。シャットダウン中...",
		"Preview server failed: %v":      "プレビューサーバーでエラーが発生しました: %v",
		"Initial video not loaded: %v":   "初期動画を読み込めませんでした: %v",
		"framecue version %s":            "framecue バージョン %s",

		// Grab command
		"Saved frame %d (%s) to %s":                  "フレーム %d (%s) を %s に保存しました",
		"Either --frame or --time is required":       "--frame または --time のどちらかが必要です",
		"--to (%d) is before the first frame (%d)":   "--to (%d) が開始フレーム (%d) より前です",

		// Probe command
		"Closing %s failed: %v": "%s のクローズに失敗しました: %v",
		"File:":                 "ファイル:",
		"Location:":             "場所:",
		"Size:":                 "サイズ:",
		"Frame rate:":           "フレームレート:",
		"Time base:":            "タイムベース:",
		"Frames:":               "フレーム数:",
		"Duration:":             "再生時間:",
		"Codec:":                "コーデック:",
		"Backend:":              "バックエンド:",
	})
}
