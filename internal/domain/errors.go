package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrNoActiveStream = errors.New("no active stream")
