// Package discovery advertises the voicelink TCP service over mDNS and
// browses the local network for other instances.
package discovery
