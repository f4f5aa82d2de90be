// Package rest exposes read-only HTTP mirrors of the relay state: the
// geofence list, the recent alert history, and aggregate status counters.
package rest
