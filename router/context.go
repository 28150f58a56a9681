/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package router

import "sync"

// Context is the per-connection key/value bag the connection state machine
// (package c2s) uses to store ConnectionState fields (spec.md §3): the
// username and bound resource, the current JID, the secured and
// authenticated flags, and the last presence. It is written by one
// connection's actor goroutine; other goroutines (the router, delivering
// stanzas from other connections) read it through the RWMutex-guarded
// getters below.
type Context struct {
	mu     sync.RWMutex
	values map[string]interface{}
	done   chan struct{}
	once   sync.Once
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{
		values: make(map[string]interface{}),
		done:   make(chan struct{}),
	}
}

// SetString stores a string value under key.
func (c *Context) SetString(v, key string) {
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
}

// String returns the string stored under key, or "" if absent.
func (c *Context) String(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key].(string); ok {
		return v
	}
	return ""
}

// SetBool stores a bool value under key.
func (c *Context) SetBool(v bool, key string) {
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
}

// Bool returns the bool stored under key, or false if absent.
func (c *Context) Bool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, _ := c.values[key].(bool)
	return v
}

// SetObject stores an arbitrary value under key.
func (c *Context) SetObject(v interface{}, key string) {
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
}

// Object returns the value stored under key, or nil if absent.
func (c *Context) Object(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// Terminate marks the context as done, closing the channel Done returns.
// Safe to call more than once.
func (c *Context) Terminate() {
	c.once.Do(func() { close(c.done) })
}

// Done returns a channel that closes when Terminate has been called.
func (c *Context) Done() <-chan struct{} {
	return c.done
}
