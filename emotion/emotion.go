// Package emotion maps sentiment labels to the emotions moodmic can display.
package emotion

// Emotion identifies one of the display assets.
type Emotion string

const (
	Angry   Emotion = "angry"
	Excited Emotion = "excited"
	Happy   Emotion = "happy"
	Love    Emotion = "love"
	Neutral Emotion = "neutral"
)

// All lists every displayable emotion, Neutral last.
var All = []Emotion{Angry, Excited, Happy, Love, Neutral}

// FromLabel maps a sentiment label to an emotion. Matching is exact and
// case-sensitive; any label outside the known set (including "") is Neutral.
func FromLabel(label string) Emotion {
	switch label {
	case "anger":
		return Angry
	case "excitement":
		return Excited
	case "joy":
		return Happy
	case "love":
		return Love
	default:
		return Neutral
	}
}

// Asset describes how an emotion is drawn.
type Asset struct {
	ID    string // stable identifier, e.g. "emoji_happy"
	Glyph string
	Color string // ANSI 256 colour code
}

var assets = map[Emotion]Asset{
	Angry:   {ID: "emoji_angry", Glyph: "😠", Color: "196"},
	Excited: {ID: "emoji_excited", Glyph: "🤩", Color: "214"},
	Happy:   {ID: "emoji_happy", Glyph: "😊", Color: "226"},
	Love:    {ID: "emoji_love", Glyph: "😍", Color: "205"},
	Neutral: {ID: "emoji_neutral", Glyph: "😐", Color: "250"},
}

// Asset returns the display asset. Unknown values fall back to Neutral's.
func (e Emotion) Asset() Asset {
	if a, ok := assets[e]; ok {
		return a
	}
	return assets[Neutral]
}

func (e Emotion) String() string { return string(e) }
