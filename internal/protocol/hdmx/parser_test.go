package hdmx

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	raw := BuildFrame(CodeQueryPort, 2, 4)
	f, err := ParseFrame(raw)
	require.NoError(t, err)

	assert.Equal(t, CodeQueryPort, f.Code)
	assert.Equal(t, byte(2), f.Arg())
	assert.Equal(t, byte(4), f.Value())
	assert.Equal(t, raw[FrameLen-1], f.Checksum)
	assert.Equal(t, "A5 5B 02 01 02 00 04 00 00 00 00 00 F7", f.Hex())
}

func TestParseFrameErrors(t *testing.T) {
	good := BuildFrame(CodeQueryPort, 2, 4)

	t.Run("长度不足", func(t *testing.T) {
		_, err := ParseFrame(good[:FrameLen-1])
		assert.ErrorIs(t, err, ErrFrameLength)
	})

	t.Run("帧头错误", func(t *testing.T) {
		raw := append([]byte(nil), good...)
		raw[0] = 0xAA
		_, err := ParseFrame(raw)
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("校验和错误", func(t *testing.T) {
		raw := append([]byte(nil), good...)
		raw[6] = 0x03
		_, err := ParseFrame(raw)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})
}

func TestValidateSetCommand(t *testing.T) {
	cmd := ChangePort{Output: 3, Input: 5}
	req, err := Encode(cmd, 4)
	require.NoError(t, err)

	t.Run("回显确认", func(t *testing.T) {
		f, err := Validate(req, cmd)
		require.NoError(t, err)
		assert.Equal(t, CodeChangePort, f.Code)
	})

	t.Run("参数不一致", func(t *testing.T) {
		_, err := Validate(BuildFrame(CodeChangePort, 5, 2), cmd)
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
	})

	t.Run("命令码不一致", func(t *testing.T) {
		_, err := Validate(BuildFrame(CodeSetBeep, 5, 3), cmd)
		require.ErrorIs(t, err, ErrUnexpectedResponse)

		var ue *UnexpectedResponseError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "change_port", ue.Command)
		assert.Len(t, ue.Raw, FrameLen)
	})

	t.Run("校验和错误", func(t *testing.T) {
		raw := append([]byte(nil), req...)
		raw[FrameLen-1]++
		_, err := Validate(raw, cmd)
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
	})
}

func TestValidateQueryCommand(t *testing.T) {
	cmd := QueryStatus{Output: 2}

	f, err := Validate(BuildResponse(cmd, 4), cmd)
	require.NoError(t, err)
	assert.Equal(t, byte(4), f.Value())

	// 回显端口与查询端口不一致
	_, err = Validate(BuildFrame(CodeQueryPort, 3, 4), cmd)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestDecodeStatus(t *testing.T) {
	cmd := QueryStatus{Output: 2}

	t.Run("正常", func(t *testing.T) {
		f, err := Validate(BuildResponse(cmd, 4), cmd)
		require.NoError(t, err)
		st, err := DecodeStatus(f, 4)
		require.NoError(t, err)
		assert.Equal(t, &Status{Output: 2, Input: 4}, st)
	})

	t.Run("路由输入为0", func(t *testing.T) {
		f, err := Validate(BuildResponse(cmd, 0), cmd)
		require.NoError(t, err)
		_, err = DecodeStatus(f, 4)
		assert.ErrorIs(t, err, ErrMalformedStatus)
	})

	t.Run("路由输入超上限", func(t *testing.T) {
		f, err := Validate(BuildResponse(cmd, 0xFF), cmd)
		require.NoError(t, err)
		_, err = DecodeStatus(f, 4)
		assert.ErrorIs(t, err, ErrMalformedStatus)
	})

	t.Run("非路由查询帧", func(t *testing.T) {
		f, err := ParseFrame(BuildFrame(CodeQueryHPD, 2, 0))
		require.NoError(t, err)
		_, err = DecodeStatus(f, 4)
		assert.ErrorIs(t, err, ErrMalformedStatus)
	})

	t.Run("空帧", func(t *testing.T) {
		_, err := DecodeStatus(nil, 4)
		assert.ErrorIs(t, err, ErrMalformedStatus)
	})
}

func TestDecodeFlags(t *testing.T) {
	zero, err := ParseFrame(BuildFrame(CodeQueryBeep, 0, 0))
	require.NoError(t, err)
	one, err := ParseFrame(BuildFrame(CodeQueryBeep, 0, 1))
	require.NoError(t, err)

	assert.True(t, DecodeBeep(zero))
	assert.False(t, DecodeBeep(one))
	assert.True(t, DecodeHPD(zero))
	assert.False(t, DecodeHPD(one))
	assert.False(t, DecodeCable(zero))
	assert.True(t, DecodeCable(one))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "invalid_port", Kind(&InvalidPortError{Field: "output", Port: 0, Max: 4}))
	assert.Equal(t, "invalid_argument", Kind(&InvalidEDIDError{Value: 0}))
	assert.Equal(t, "timeout", Kind(&TimeoutError{}))
	assert.Equal(t, "transport", Kind(&TransportError{Op: "write"}))
	assert.Equal(t, "unexpected_response", Kind(&UnexpectedResponseError{}))
	assert.Equal(t, "malformed_status", Kind(&MalformedStatusError{}))
}

func TestDesyncs(t *testing.T) {
	assert.True(t, Desyncs(&TimeoutError{Received: 0}))
	assert.True(t, Desyncs(fmt.Errorf("wrapped: %w", &TimeoutError{Received: 5})))
	assert.True(t, Desyncs(&UnexpectedResponseError{}))
	assert.False(t, Desyncs(&TransportError{Op: "write"}))
}

func TestHexString(t *testing.T) {
	assert.Equal(t, "", HexString(nil))
	assert.Equal(t, "A5 5B 0F", HexString([]byte{0xA5, 0x5B, 0x0F}))
}
