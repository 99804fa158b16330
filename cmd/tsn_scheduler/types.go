package main

import "time"

const (
	// Hardware queue for priorities missing from the priority file
	defaultQueue = "3"

	numTc        = 4
	queues       = "1@0 1@1 1@2 1@3"
	taprioHandle = "100"

	deleteSettle = 5 * time.Second
	etfSettle    = 1 * time.Second
)
