// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gauge_cluster/internal/config"
)

// mqttClient is the part of mqtt.Client the telemetry path uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// ConnectMQTT connects to broker with automatic reconnects.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("mqtt: connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}
	log.Info().Str("broker", broker).Str("client_id", clientID).Msg("mqtt: connected")
	return client, nil
}

// Telemetry publishes cluster status and receives remote commands.
type Telemetry struct {
	client       mqttClient
	statusTopic  string
	gpsTopic     string
	commandTopic string
}

// NewTelemetry uses the topics from cfg.
func NewTelemetry(client mqttClient, cfg *config.Config) *Telemetry {
	return &Telemetry{
		client:       client,
		statusTopic:  cfg.TopicOdometer,
		gpsTopic:     cfg.TopicGPS,
		commandTopic: cfg.TopicCommand,
	}
}

// PublishStatus sends the snapshot retained on the odometer topic and the
// fix on the GPS topic. It does not wait for delivery.
func (t *Telemetry) PublishStatus(s Status) error {
	if err := t.publish(t.statusTopic, true, s); err != nil {
		return err
	}
	return t.publish(t.gpsTopic, false, s.Fix)
}

func (t *Telemetry) publish(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("telemetry: marshal %s: %w", topic, err)
	}
	token := t.client.Publish(topic, 0, retained, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("telemetry: publish %s: %w", topic, err)
		}
	default:
	}
	return nil
}

// SubscribeCommands forwards every valid command on the command topic to
// submit. Invalid payloads are logged and dropped.
func (t *Telemetry) SubscribeCommands(submit func(Command) bool) error {
	token := t.client.Subscribe(t.commandTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		cmd, err := ParseCommand(msg.Payload())
		if err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic()).Msg("telemetry: bad command")
			return
		}
		submit(cmd)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: subscribe %s: %w", t.commandTopic, err)
	}
	log.Info().Str("topic", t.commandTopic).Msg("telemetry: listening for commands")
	return nil
}

// SendCommand publishes cmd on the command topic and waits for the broker.
func SendCommand(client mqttClient, topic string, cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}
