package configuration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	operations "github.com/goliatone/go-operations"
)

var testKey = operations.OperationKey{
	Subsystem: "main",
	Operation: "configuration",
	Request:   "update",
	Instance:  "42",
}

func request(status string) operations.Message {
	return operations.NewMessage(testKey, status).
		Set("target", "/etc/app.conf").
		Set("src_url", "http://example.test/app.conf")
}

func TestFromMessageDecodesEveryVariant(t *testing.T) {
	cases := []struct {
		msg  operations.Message
		want State
	}{
		{request(StatusInit), Init{}},
		{request(StatusScheduled), Scheduled{}},
		{request(StatusDownloading).Set("path", "/tmp/x"), Downloading{}},
		{request(StatusDownloaded).Set("path", "/tmp/x"), Downloaded{}},
		{request(StatusInstalling).Set("path", "/tmp/x"), Installing{}},
		{request(StatusSuccessful), Successful{}},
		{request(StatusFailed).Set("reason", "boom"), Failed{}},
	}
	for _, tc := range cases {
		t.Run(tc.msg.Status, func(t *testing.T) {
			s, err := FromMessage(tc.msg)
			require.NoError(t, err)
			assert.IsType(t, tc.want, s)
			assert.Equal(t, tc.msg.Status, s.Status())
			assert.Equal(t, testKey, Key(s))
			assert.Equal(t, "42", ID(s))
			assert.Equal(t, "/etc/app.conf", RequestOf(s).Target)
		})
	}
}

func TestAccessorsOnlyApplyToTheirVariants(t *testing.T) {
	h := Header{Key: testKey}

	_, ok := Path(Init{h})
	assert.False(t, ok)
	p, ok := Path(Installing{Header: h, Path: "/tmp/x"})
	assert.True(t, ok)
	assert.Equal(t, "/tmp/x", p)

	_, ok = Reason(Successful{h})
	assert.False(t, ok)
	r, ok := Reason(Failed{Header: h, Reason: "boom"})
	assert.True(t, ok)
	assert.Equal(t, "boom", r)

	assert.True(t, Terminal(Failed{Header: h}))
	assert.True(t, Terminal(Successful{h}))
	assert.False(t, Terminal(Downloaded{Header: h}))
}

func TestFromMessageRejectsIncompleteRequest(t *testing.T) {
	s, err := FromMessage(operations.NewMessage(testKey, StatusInit).Set("target", "/etc/app.conf"))
	require.Error(t, err)
	require.NotNil(t, s)
	assert.Equal(t, StatusInit, s.Status())
	assert.Equal(t, "Invalid configuration request: missing src_url", operations.ErrorMessage(err))

	_, err = FromMessage(request(StatusDownloaded))
	require.Error(t, err)
	assert.Contains(t, operations.ErrorMessage(err), "path")
}

func TestFromMessageRejectsUnknownStatus(t *testing.T) {
	s, err := FromMessage(request("rebooting"))
	assert.Nil(t, s)
	assert.True(t, operations.HasCode(err, operations.ErrCodeIllegalTransition))
}

func TestToMessageRoundTrip(t *testing.T) {
	in := request(StatusDownloading).Set("path", "/tmp/x").Set("sha256", "abc")
	s, err := FromMessage(in)
	require.NoError(t, err)

	out := ToMessage(s)
	assert.Equal(t, StatusDownloading, out.Status)
	assert.Equal(t, in.JSON, out.JSON)

	failed := ToMessage(Fail(s, "no space left"))
	assert.Equal(t, StatusFailed, failed.Status)
	reason, _ := failed.String("reason")
	assert.Equal(t, "no space left", reason)
	path, _ := failed.String("path")
	assert.Empty(t, path)
}
