package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func newMockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)
	return &Producer{producer: mock}, mock
}

func TestSendSaleKeysByShop(t *testing.T) {
	producer, mock := newMockedProducer(t)

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "pos.sales" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}

		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		// 同店铺事件必须落在同一分区
		if string(key) != "shop-3" {
			return fmt.Errorf("unexpected partition key %q", key)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var sale SaleMessage
		if err := json.Unmarshal(value, &sale); err != nil {
			return err
		}
		if sale.BillID != 42 || sale.Total != 19.5 {
			return fmt.Errorf("unexpected sale payload %+v", sale)
		}
		return nil
	})

	err := producer.SendSale("pos.sales", SaleMessage{
		BillID: 42, ShopID: 3, UserID: 7, Total: 19.5,
	})
	require.NoError(t, err)
	require.NoError(t, mock.Close())
}

func TestSendSalePropagatesBrokerError(t *testing.T) {
	producer, mock := newMockedProducer(t)

	brokerErr := errors.New("broker down")
	mock.ExpectSendMessageAndFail(brokerErr)

	err := producer.SendSale("pos.sales", SaleMessage{BillID: 1, ShopID: 1})
	require.ErrorIs(t, err, brokerErr)
	require.NoError(t, mock.Close())
}
