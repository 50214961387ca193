// Package redis stores question/answer history in Redis.
//
// Each exchange is a JSON string under "<prefix>exchange:<id>" and a sorted
// set "<prefix>exchanges" indexes the IDs by creation time, so List reads the
// newest entries with a single ZREVRANGE. An optional TTL expires exchanges.
package redis
