// Command parcelwatch discovers parcels from Gmail shipping email and
// tracks their delivery status from the terminal.
package main
