package weather

// Condition is a human-readable weather summary
type Condition struct {
	Text string
	Icon string
}

// ConditionForCode maps a WMO weather code to condition text and icon
func ConditionForCode(code int) Condition {
	switch {
	case code == 0:
		return Condition{Text: "晴", Icon: "☀️"}
	case code >= 1 && code <= 3:
		return Condition{Text: "多云", Icon: "⛅"}
	case code == 45 || code == 48:
		return Condition{Text: "雾", Icon: "🌫️"}
	case code >= 51 && code <= 57:
		return Condition{Text: "毛毛雨", Icon: "🌦️"}
	case code >= 61 && code <= 67:
		return Condition{Text: "降雨", Icon: "🌧️"}
	case code >= 71 && code <= 77:
		return Condition{Text: "降雪", Icon: "🌨️"}
	case code >= 80 && code <= 82:
		return Condition{Text: "阵雨", Icon: "🌦️"}
	case code >= 85 && code <= 86:
		return Condition{Text: "阵雪", Icon: "🌨️"}
	case code == 95:
		return Condition{Text: "雷暴", Icon: "⛈️"}
	case code >= 96 && code <= 99:
		return Condition{Text: "强雷暴", Icon: "⛈️"}
	default:
		return Condition{Text: "未知天气", Icon: "❓"}
	}
}
