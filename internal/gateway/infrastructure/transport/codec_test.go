package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

func TestEncodeMarketDataSubscribe(t *testing.T) {
	msg := &domain.MarketDataMessage{
		Header:      domain.Header{TxID: 7},
		DataType:    domain.DataTypeCandles,
		SecurityID:  42,
		Arg:         "M1",
		IsSubscribe: true,
	}

	f, err := EncodeFrame(msg)
	require.NoError(t, err)
	assert.Equal(t, frameMarketData, f.Type)
	assert.Equal(t, int64(7), f.TxID)
	assert.Equal(t, "candles", f.DataType)
	require.NotNil(t, f.IsSubscribe)
	assert.True(t, *f.IsSubscribe)
}

func TestEncodeRejectsOutboundOnlyVariant(t *testing.T) {
	_, err := EncodeFrame(&domain.CandleMessage{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMessage)
}

func TestDecodeCandle(t *testing.T) {
	f := &Frame{
		Type:         frameCandle,
		OriginalTxID: 9,
		LocalTime:    time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC).UnixMilli(),
		SecurityID:   42,
		Arg:          "M1",
		Open:         "101.5",
		Close:        "102.25",
		Volume:       "1500",
	}

	msg, err := DecodeFrame(f)
	require.NoError(t, err)
	candle, ok := msg.(*domain.CandleMessage)
	require.True(t, ok)
	assert.Equal(t, domain.TxID(9), candle.OriginalTxID)
	assert.Equal(t, "101.5", candle.OpenPrice.String())
	assert.Equal(t, "102.25", candle.ClosePrice.String())
	assert.False(t, candle.LocalTime.IsZero())
}

func TestDecodeExecutionTypes(t *testing.T) {
	cases := []struct {
		wire string
		want domain.ExecutionType
	}{
		{"tick", domain.ExecTypeTick},
		{"orderlog", domain.ExecTypeOrderLog},
		{"transaction", domain.ExecTypeTransaction},
	}
	for _, tc := range cases {
		msg, err := DecodeFrame(&Frame{Type: frameExecution, ExecType: tc.wire})
		require.NoError(t, err)
		assert.Equal(t, tc.want, msg.(*domain.ExecutionMessage).ExecType)
	}
}

func TestDecodeErrorFrame(t *testing.T) {
	msg, err := DecodeFrame(&Frame{Type: frameMarketData, OriginalTxID: 3, Error: "market closed"})
	require.NoError(t, err)
	require.Error(t, msg.Head().Error)
	assert.Contains(t, msg.Head().Error.Error(), "market closed")
}

func TestDecodeUnknownFrameFails(t *testing.T) {
	_, err := DecodeFrame(&Frame{Type: "heartbeat_v2"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMessage)
}
