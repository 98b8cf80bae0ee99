package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Controller (info)
		"Loading %s": "%s を読み込み中",
		"Loaded %s: %dx%d, %s fps, %d frames (%s)": "%s を読み込みました: %dx%d, %s fps, %d フレーム (%s)",
		"Playing at %v per frame":                  "1フレームあたり %v で再生中",
		"End of stream reached":                    "ストリームの終端に達しました",
		"Already showing %s":                       "%s は表示中です",
		"Remote playback %s":                       "リモート再生: %s",
		"Remote load of %s did not complete: %v":   "リモートからの %s の読み込みが完了しませんでした: %v",

		// Controller (errors)
		"Seek failed: %v":                   "シークに失敗しました: %v",
		"Failed to load %s: %v":             "%s の読み込みに失敗しました: %v",
		"Closing previous video failed: %v": "前の動画のクローズに失敗しました: %v",

		// Remote channel
		"Connecting to WebSocket server: %s":            "WebSocketサーバーに接続中: %s",
		"Connected successfully!":                       "接続しました",
		"Session %s":                                    "セッション %s",
		"Sent registration message":                     "登録メッセージを送信しました",
		"Server: %s":                                    "サーバー: %s",
		"Registered as: %s":                             "登録完了: %s",
		"Video info received: %s":                       "動画情報を受信しました: %s",
		"Remote %s":                                     "リモート: %s",
		"Reconnecting in %v...":                         "%v 後に再接続します...",
		"Connection refused. Is the server running at %s?": "接続が拒否されました。%s でサーバーが動作していますか?",
		"Connection closed by server":                   "サーバーが接続を閉じました",
		"Connection error: %v":                          "接続エラー: %v",
		"Dropping malformed message: %v":                "不正なメッセージを破棄しました: %v",
		"Unknown message type: %s":                      "不明なメッセージ種別: %s",
		"Command queue full, dropped %d stale timecodes before frame %d": "コマンドキューが満杯のため、フレーム %[2]d の前の古いタイムコード %[1]d 件を破棄しました",

		// Decoding backends
		"Indexed %d samples, %d keyframes in %v":         "%d サンプル、%d キーフレームを %v でインデックス化しました",
		"Opened %s: %dx%d @ %s, %d frames":               "%s を開きました: %dx%d @ %s, %d フレーム",
		"Decoding from keyframe %d (pts %d)":             "キーフレーム %d (pts %d) からデコード中",
		"Decoder produced more pictures than samples":    "デコーダーがサンプル数より多くのピクチャを出力しました",
		"Frame %d not present in stream, returning frame %d": "フレーム %d はストリームに存在しないため、フレーム %d を返します",
		"Landed on frame %d past target %d, retrying from %ds": "目標 %[2]d を越えたフレーム %[1]d に到達したため、%[3]d 秒から再試行します",
		"Grabbed %d of %d frames from %.6fs":             "%.6[3]f 秒から %[2]d フレーム中 %[1]d フレームを取得しました",
		"Requested frame %d, platform returned frame %d (%.6fs)": "フレーム %d を要求しましたが、プラットフォームはフレーム %d (%.6f 秒) を返しました",
		"Software decoding unavailable for %s (%v), using hardware backend": "%s はソフトウェアデコードできないため (%v)、ハードウェアバックエンドを使用します",

		// Preview server
		"Preview server listening on http://%s": "プレビューサーバーを http://%s で待ち受け中",
		"Preview server stopped":                "プレビューサーバーを停止しました",
		"Request failed: %v":                    "リクエストに失敗しました: %v",
	})
}
