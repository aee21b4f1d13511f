package config

import "errors"

var (
	ErrNoTarget     = errors.New("config: no Redis URL, socket, sentinels or host configured")
	ErrNoMasterName = errors.New("config: sentinels require a master name")
	ErrInvalidPort  = errors.New("config: port out of range")
)
