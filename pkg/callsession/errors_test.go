package callsession_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/soft_call/pkg/callsession"
)

func TestCallErrorUnwrap(t *testing.T) {
	root := errors.New("connection refused")
	err := callsession.ErrCredentialFetch(root)

	assert.ErrorIs(t, err, root, "Unwrap достаёт исходную ошибку")

	wrapped := fmt.Errorf("join: %w", err)
	var callErr *callsession.CallError
	require.ErrorAs(t, wrapped, &callErr)
	assert.Equal(t, callsession.ErrorKindCredential, callErr.Kind)
	assert.True(t, callErr.IsRetryable())
}

func TestCallErrorFormat(t *testing.T) {
	err := callsession.ErrAlreadyInCall(callsession.StatusConnected)
	assert.Contains(t, err.Error(), "ALREADY_IN_CALL")
	assert.Contains(t, err.Error(), string(callsession.ErrorKindState))

	withSess := callsession.ErrEngineJoin(errors.New("timeout")).
		WithSession("sess-7", callsession.StatusConnecting)
	assert.Contains(t, withSess.Error(), "sess-7")
}

func TestCallErrorSeverity(t *testing.T) {
	// Отмена попытки - рабочий сценарий, не показываем пользователю
	canceled := callsession.ErrJoinCanceled()
	assert.Equal(t, callsession.SeverityWarning, canceled.Severity)
	assert.False(t, canceled.UserVisible)

	denied := callsession.ErrPermissionDenied("camera")
	assert.Equal(t, callsession.SeverityError, denied.Severity)
	assert.True(t, denied.UserVisible)
	assert.False(t, denied.IsRetryable(), "права не лечатся повтором")
}

func TestCallErrorWithSession(t *testing.T) {
	err := callsession.NewCallError("TEST", "тест", callsession.ErrorKindEngine, callsession.SeverityError).
		WithSession("sess-3", callsession.StatusConnecting).
		WithCause(errors.New("root"))

	assert.Equal(t, "sess-3", err.SessionID)
	assert.Equal(t, callsession.StatusConnecting, err.Status)
	assert.NotNil(t, err.Unwrap())
}
