// +build !windows

package cmd

import (
	"log/syslog"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"

	"github.com/brocaar/chirpstack-node/internal/config"
)

var syslogPriorities = map[log.Level]syslog.Priority{
	log.TraceLevel: syslog.LOG_DEBUG,
	log.DebugLevel: syslog.LOG_DEBUG,
	log.InfoLevel:  syslog.LOG_INFO,
	log.WarnLevel:  syslog.LOG_WARNING,
	log.ErrorLevel: syslog.LOG_ERR,
	log.FatalLevel: syslog.LOG_CRIT,
	log.PanicLevel: syslog.LOG_CRIT,
}

func setSyslog() error {
	if !config.C.General.LogToSyslog {
		return nil
	}

	prio := syslog.LOG_USER | syslogPriorities[log.StandardLogger().Level]
	hook, err := lsyslog.NewSyslogHook("", "", prio, "chirpstack-node")
	if err != nil {
		return errors.Wrap(err, "get syslog hook error")
	}

	log.AddHook(hook)
	return nil
}
