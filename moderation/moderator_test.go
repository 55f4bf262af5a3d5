package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

func TestModerator_CensorsConfiguredWords(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"badword", "worse"}, '*')
	req.NoError(err)

	req.Equal("this is a *******", m.Censor("this is a badword"))
	req.Equal("***** and *******", m.Censor("worse and badword"))
}

func TestModerator_IsCaseInsensitive(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"BadWord"}, '*')
	req.NoError(err)

	req.Equal("*******!", m.Censor("BADWORD!"))
	req.Equal("*******!", m.Censor("badword!"))
}

func TestModerator_PreservesCleanText(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"badword"}, '*')
	req.NoError(err)

	req.Equal("a perfectly fine message", m.Censor("a perfectly fine message"))
	req.Equal("", m.Censor(""))
}

func TestModerator_HandlesUnicode(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"héllo"}, '#')
	req.NoError(err)

	req.Equal("say ##### twice", m.Censor("say héllo twice"))
}

func TestModerator_FoldsLeetSpeak(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"badword"}, '*')
	req.NoError(err)

	req.Equal("*******", m.Censor("b4dw0rd"))
	req.Equal("so *******!", m.Censor("so b@dw0rd!"))
}

func TestModerator_SkipsSeparators(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"badword"}, '*')
	req.NoError(err)

	// Separators inside the matched span are censored along with it.
	req.Equal("*************", m.Censor("b a d w o r d"))
	req.Equal("********", m.Censor("bad.word"))
}

func TestNewModerator_RejectsEmptyWordList(t *testing.T) {
	req := require.New(t)

	_, err := NewModerator(nil, '*')
	req.ErrorIs(err, errors.ErrEmptyWords)

	_, err = NewModerator([]string{"  ", ""}, '*')
	req.ErrorIs(err, errors.ErrEmptyWords)
}
