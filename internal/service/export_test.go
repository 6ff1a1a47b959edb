package service

import "time"

func (r *OutboxRelay) SetNow(now func() time.Time) { r.now = now }
