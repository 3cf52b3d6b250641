/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pg_listener

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// JobsChannel is the channel the recon_jobs trigger notifies on. The payload is the job ID.
const JobsChannel = "recon_jobs"

type NotificationHandler interface {
	HandleNotification(channel, payload string) error
}

type ListenerConfig struct {
	PgConnStr            string
	Channel              string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
}

type DBListener struct {
	config  ListenerConfig
	handler NotificationHandler
}

func NewDBListener(config ListenerConfig, handler NotificationHandler) *DBListener {
	if config.Channel == "" {
		config.Channel = JobsChannel
	}
	if config.MinReconnectInterval <= 0 {
		config.MinReconnectInterval = 10 * time.Second
	}
	if config.MaxReconnectInterval <= 0 {
		config.MaxReconnectInterval = time.Minute
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 90 * time.Second
	}
	return &DBListener{
		config:  config,
		handler: handler,
	}
}

// Start listens on the configured channel until ctx is done. Notifications are handed to
// the handler one at a time.
func (d *DBListener) Start(ctx context.Context) error {
	listener := pq.NewListener(d.config.PgConnStr, d.config.MinReconnectInterval, d.config.MaxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logrus.Warnf("postgres listener error: %v", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(d.config.Channel); err != nil {
		return err
	}
	logrus.Infof("listening for postgres notifications on channel %q", d.config.Channel)

	ping := time.NewTicker(d.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			d.dispatch(n)
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				logrus.Warnf("postgres listener ping failed: %v", err)
			}
		}
	}
}

// dispatch forwards a notification to the handler. pq delivers nil after reconnecting,
// when notifications may have been missed, so the handler is still called with an
// empty payload.
func (d *DBListener) dispatch(n *pq.Notification) {
	channel, payload := d.config.Channel, ""
	if n != nil {
		channel, payload = n.Channel, n.Extra
	}
	if err := d.handler.HandleNotification(channel, payload); err != nil {
		logrus.Errorf("error handling notification on %s: %v", channel, err)
	}
}
