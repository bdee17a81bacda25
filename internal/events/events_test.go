package events

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taleweaver/internal/pipeline"
)

func TestDecodeStageUpdate(t *testing.T) {
	ev, err := Decode(NameStageUpdate, []byte(`{"stage":"voices","status":"error","detail":"no narrator","retryable":true,"generation":3}`))
	require.NoError(t, err)

	su, ok := ev.(StageUpdate)
	require.True(t, ok)
	assert.Equal(t, pipeline.StageVoices, su.Stage)
	assert.Equal(t, pipeline.StatusError, su.Status)
	assert.Equal(t, "no narrator", su.Detail)
	require.NotNil(t, su.Retryable)
	assert.True(t, *su.Retryable)
	assert.Equal(t, uint64(3), su.Epoch())
}

func TestDecodeRejectsUnknownStage(t *testing.T) {
	_, err := Decode(NameStageUpdate, []byte(`{"stage":"music","status":"active"}`))
	require.ErrorIs(t, err, pipeline.ErrUnknownStage)

	_, err = Decode(NameStageUpdate, []byte(`{"stage":"art","status":"done"}`))
	require.ErrorIs(t, err, pipeline.ErrUnknownStatus)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode("heartbeat", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode(NameProgress, []byte(`{"percent":`))
	require.Error(t, err)
}

func TestDecodeReadyWithBundle(t *testing.T) {
	intro := base64.StdEncoding.EncodeToString([]byte("ID3intro"))
	scene := base64.StdEncoding.EncodeToString([]byte("ID3scene"))
	raw := `{
		"stages": {"content":"success","synthesis":"success"},
		"content": {"id":"s1","title":"The Lantern","text":"the cat sat","effects":[{"key":"rain","volume":0.5,"loop":true}]},
		"audioBundle": {
			"intro": {"audio":"` + intro + `","format":"mp3"},
			"scene": {"audio":"` + scene + `","format":"mp3"},
			"wordTimings": {"words":[{"text":"the","start_ms":0,"end_ms":200}]}
		}
	}`

	ev, err := Decode(NameReady, []byte(raw))
	require.NoError(t, err)
	ready := ev.(Ready)

	assert.Equal(t, "The Lantern", ready.Payload.Content.Title)
	require.Len(t, ready.Payload.Content.Effects, 1)
	assert.True(t, ready.Payload.Content.Effects[0].Loop)
	require.NotNil(t, ready.Payload.AudioBundle)
	assert.Equal(t, []byte("ID3intro"), ready.Payload.AudioBundle.Intro.Data)
	assert.Equal(t, "mp3", ready.Payload.AudioBundle.Scene.Format)
	require.Len(t, ready.Payload.AudioBundle.Timings, 1)
	assert.Equal(t, int64(200), ready.Payload.AudioBundle.Timings[0].EndMs)
	assert.False(t, ready.Payload.ReceivedAt.IsZero())
}

func TestDecodeSceneAudioWithTimings(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	ev, err := Decode(NameSceneAudioReady, []byte(`{"audio":"`+audio+`","format":"wav","wordTimings":{"words":[{"text":"cat","start_ms":200,"end_ms":500}]}}`))
	require.NoError(t, err)

	sa := ev.(SceneAudioReady)
	assert.Equal(t, []byte{1, 2, 3}, sa.Audio.Data)
	assert.Equal(t, "wav", sa.Audio.Format)
	require.Len(t, sa.Words, 1)
	assert.Equal(t, "cat", sa.Words[0].Text)
}

func TestDecodeRegeneratedKinds(t *testing.T) {
	cases := map[string]pipeline.Kind{
		NameCoverRegenerated:    pipeline.KindArt,
		NameSynopsisRegenerated: pipeline.KindSynopsis,
		NameEffectsRegenerated:  pipeline.KindEffects,
		NameVoicesRegenerated:   pipeline.KindVoices,
	}
	for name, kind := range cases {
		ev, err := Decode(name, []byte(`{"success":true,"data":{"coverUrl":"https://cdn/c.png"}}`))
		require.NoError(t, err, name)
		regen := ev.(Regenerated)
		assert.Equal(t, kind, regen.Kind, name)
		assert.Equal(t, name, regen.Name())
	}
}

func TestDecodeErrorWithoutStage(t *testing.T) {
	ev, err := Decode(NameError, []byte(`{"message":"pipeline down"}`))
	require.NoError(t, err)
	pe := ev.(PipelineError)
	assert.Empty(t, pe.Stage)
	assert.Equal(t, "pipeline down", pe.Message)
}

func TestNewCommandHasFreshID(t *testing.T) {
	session := uuid.New()
	a := NewCommand(session, CmdCancel, 2)
	b := NewCommand(session, CmdCancel, 2)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, session, a.Session)
	assert.Equal(t, uint64(2), a.Generation)
}
