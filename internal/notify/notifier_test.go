package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"forestwatch/internal/pipeline"
)

type fakeNotifier struct {
	name  string
	err   error
	calls int
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) SendAlert(ctx context.Context, artifact *pipeline.AlertArtifact) error {
	f.calls++
	return f.err
}

func (f *fakeNotifier) SendTest(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestMultiPrimaryFailureSkipsSecondary(t *testing.T) {
	primary := &fakeNotifier{name: "email", err: errors.New("smtp down")}
	secondary := &fakeNotifier{name: "telegram"}
	m := NewMulti(nil, primary, secondary)

	err := m.SendAlert(context.Background(), &pipeline.AlertArtifact{ID: "a"})
	assert.Error(t, err)
	assert.Equal(t, 0, secondary.calls)
}

func TestMultiSecondaryFailureIsNotReported(t *testing.T) {
	primary := &fakeNotifier{name: "email"}
	secondary := &fakeNotifier{name: "telegram", err: errors.New("chat not found")}
	m := NewMulti(nil, primary, secondary)

	assert.NoError(t, m.SendAlert(context.Background(), &pipeline.AlertArtifact{ID: "a"}))
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, "email+telegram", m.Name())
}

func TestMultiSendTestTriesEveryChannel(t *testing.T) {
	primary := &fakeNotifier{name: "email", err: errors.New("smtp down")}
	secondary := &fakeNotifier{name: "telegram"}
	m := NewMulti(nil, primary, secondary)

	assert.EqualError(t, m.SendTest(context.Background()), "smtp down")
	assert.Equal(t, 1, secondary.calls)
}

func TestLifeType(t *testing.T) {
	assert.Equal(t, "Human", lifeType("person"))
	assert.Equal(t, "Dog", lifeType("dog"))
	assert.Equal(t, "Unknown", lifeType(""))
}
