// Package device defines the platform-neutral BLE surface the bench core talks
// to: scan ingestion, GATT operation issuance and GATT callback ingestion.
//
// Platform bindings live in subpackages (go-ble, tinygo). They translate their
// stack's blocking or channel based APIs into the fire-and-callback shape of
// Gatt and GattCallback, so the core never depends on a specific stack.
package device
