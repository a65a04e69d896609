//go:build gui

package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"moodmic/emotion"
)

var moodColors = map[emotion.Emotion]color.RGBA{
	emotion.Angry:   {230, 57, 70, 255},
	emotion.Excited: {255, 159, 28, 255},
	emotion.Happy:   {255, 214, 10, 255},
	emotion.Love:    {255, 92, 168, 255},
	emotion.Neutral: {160, 160, 160, 255},
}

func moodColor(e emotion.Emotion) color.Color {
	if c, ok := moodColors[e]; ok {
		return c
	}
	return moodColors[emotion.Neutral]
}

// moodTheme is a dark theme whose accent follows the displayed emotion.
type moodTheme struct {
	accent color.Color
}

func (d *moodTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return color.RGBA{18, 18, 18, 255}
	case theme.ColorNameForeground:
		return color.RGBA{200, 200, 200, 255}
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		if d.accent != nil {
			return d.accent
		}
	}
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}

func (d *moodTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (d *moodTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (d *moodTheme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}
