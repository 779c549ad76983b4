// Package codec converts between structured values and the fixed-layout
// byte buffers the band speaks.
//
// Every function here is pure: no I/O, no state, no logging. Layouts are
// bit-exact with the device firmware, so any change in field order or width
// breaks the device contract. Decoders fail with a protocol MalformedPacket
// error when the input is shorter than the layout and never read past a
// declared field boundary.
package codec
