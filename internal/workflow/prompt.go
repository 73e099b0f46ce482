package workflow

import "fmt"

const parsingPrompt = `以下の自然言語を自動化ルールに変換してください。

入力文: "%s"

以下のJSON形式で出力してください：

{
  "name": "ルール名",
  "description": "ルールの説明",
  "conditions": [
    {
      "type": "time|temperature|humidity|device_state",
      "operator": "equals|greater_than|less_than|between|contains",
      "value": "値",
      "deviceId": "デバイスID（必要な場合）",
      "tolerance": "許容誤差（必要な場合）"
    }
  ],
  "actions": [
    {
      "type": "device_control|scene_execution|notification",
      "deviceId": "デバイスID",
      "command": "コマンド",
      "parameters": {}
    }
  ],
  "schedule": {
    "type": "daily|weekly|interval|once",
    "time": "HH:MM",
    "days": [0,1,2,3,4,5,6],
    "interval": 60
  }
}

利用可能なデバイス:
- ハブミニ (ID: %s)
- 温湿度計 (ID: %s) - 温度・湿度測定
- エアコン (ID: %s) - エアコンリモート

重要:
- 時刻条件は "time" タイプを使用
- 温度条件は "temperature" タイプ、デバイスIDに温湿度計を指定
- エアコン操作は "device_control" タイプ、command は "turnOn", "turnOff", "setTemperature" など
- 曖昧な時刻表現（「朝」「夕方」など）は具体的な時刻に変換
- 曜日は 0=日曜 から 6=土曜
- JSON 以外は出力しない`

// Prompt builds the conversion prompt for one instruction
func Prompt(text string) string {
	return fmt.Sprintf(parsingPrompt, text, HubDeviceID, MeterDeviceID, AirconDeviceID)
}
