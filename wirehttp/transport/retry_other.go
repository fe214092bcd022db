//go:build !unix

package transport

func isInterrupted(error) bool { return false }
