// Package display implements the brightness gateway: reading and writing
// the screen brightness and the platform's brightness mode.
//
// Two backends exist:
//
//   - Backlight drives a Linux sysfs backlight device
//     (/sys/class/backlight/<name>). Raw values are scaled to the 0-255
//     range used everywhere else. The brightness mode lives in a small
//     text file that desktop tooling flips to "automatic" when it wants
//     its own auto-brightness in charge.
//   - Memory keeps everything in process. It backs the "memory" display
//     backend used for development and tests.
//
// Both implement control.Gateway and state.Environment, and both report
// screen power through ScreenOn, which PowerWatcher polls.
package display
