package database

import (
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriterWithRetry 確認 broker 可連線後建立 Kafka Writer
func NewKafkaWriterWithRetry(k KafkaConnection) (*kafka.Writer, error) {
	var err error

	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		if err = pingBrokers(k.Brokers); err == nil {
			log.Printf("Kafka Writer 建立成功 (嘗試 %d 次)", attempt)
			return &kafka.Writer{
				Addr:                   kafka.TCP(k.Brokers...),
				Topic:                  k.Topic,
				Balancer:               &kafka.Hash{},
				Async:                  k.Async,
				AllowAutoTopicCreation: true,
				BatchTimeout:           50 * time.Millisecond,
			}, nil
		}

		log.Printf("Kafka Writer 建立失敗 (嘗試 %d/%d): %v", attempt, k.RetryCount, err)
		time.Sleep(k.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("無法建立 Kafka Writer，經過 %d 次嘗試: %v", k.RetryCount, err)
}

func pingBrokers(brokers []string) error {
	var err error
	for _, b := range brokers {
		var conn *kafka.Conn
		conn, err = kafka.Dial("tcp", b)
		if err == nil {
			return conn.Close()
		}
	}
	if err == nil {
		err = fmt.Errorf("no kafka brokers configured")
	}
	return err
}
