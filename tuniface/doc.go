// Package tuniface defines the local tunnel device interface the core
// injects decrypted application IPv6 packets into and receives packets
// from, plus a channel-backed MemDevice test double. A real platform TUN
// device (opening /dev/net/tun or equivalent) is out of scope; callers
// wanting one wire their own Device implementation.
package tuniface
