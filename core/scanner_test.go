package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinkFuncAdaptsPlainFunction(t *testing.T) {
	var received []ScanMessageKind
	sink := SinkFunc(func(msg ScanMessage) error {
		received = append(received, msg.Kind)
		return nil
	})

	var s Sink = sink
	require := assert.New(t)
	require.NoError(s.Accept(ScanMessage{Kind: ScanStarted}))
	require.NoError(s.Accept(ScanMessage{Kind: ScanCompleted}))
	require.Equal([]ScanMessageKind{ScanStarted, ScanCompleted}, received)
}

func TestSinkFuncPropagatesCancellation(t *testing.T) {
	boom := assertError("sink refused the message")
	sink := SinkFunc(func(msg ScanMessage) error { return boom })

	err := sink.Accept(ScanMessage{Kind: CommitData})
	assert.Equal(t, error(boom), err)
}
