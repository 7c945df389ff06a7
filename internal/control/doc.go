// Package control implements the brightness control loop.
//
// The Loop subscribes to the state store, recomputes a target brightness
// whenever the relative level or the lux reading changes, and applies it
// through a Gateway. At the preference extremes (level 0 and 100) the
// brightness is pinned and the sensor sampler is switched off.
//
// The loop never fights another brightness agent. If the device switches
// to automatic mode, or the brightness changes to something the loop did
// not write, the loop stops itself and reports the reason through the
// feedback sink and its Lifecycle collaborator.
//
// Thread Safety:
//   - All public methods are safe for concurrent use.
//   - The loop mutex is never held across calls into the store, the
//     gateway, the sampler, or any collaborator.
package control
