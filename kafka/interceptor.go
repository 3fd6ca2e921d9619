package kafka

import (
	"github.com/IBM/sarama"
)

type SaleInterceptor struct {
}

func (i *SaleInterceptor) OnSend(msg *sarama.ProducerMessage) {
	msg.Headers = append(msg.Headers, sarama.RecordHeader{
		Key:   []byte("produced-by"),
		Value: []byte("smart-inventory-pos"),
	})
}

func NewSaleInterceptor() *SaleInterceptor {
	return &SaleInterceptor{}
}
