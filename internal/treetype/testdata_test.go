package treetype

const nmdaTree = `module: ietf-interfaces
  +--rw interfaces
  |  +--rw interface* [name]
  |     +--rw name           string
  |     +--ro oper-status    enumeration
  x--ro interfaces-state
     x--ro interface* [name]
        x--ro name    string
`

const splitTree = `module: ietf-interfaces
  +--rw interfaces
  |  +--rw interface* [name]
  |     +--rw name    string
  +--ro interfaces-state
     +--ro interface* [name]
        +--ro name    string
`

const openconfigTree = `module: openconfig-interfaces
  +--rw interfaces
     +--rw interface* [name]
        +--rw name      -> ../config/name
        +--rw config
        |  +--rw name?   string
        |  +--rw mtu?    uint16
        +--ro state
           +--ro name?   string
           +--ro mtu?    uint16
           +--ro counters
              +--ro in-octets?   uint64
`

const mirroredTree = `module: mirrored
  +--rw system
     +--rw config
     |  +--rw hostname?   string
     +--ro state
        +--ro hostname?   string
`

const stateTree = `module: foo-state
  +--ro interfaces-state
     +--ro interface* [name]
        +--ro name     string
        +--ro speed?   uint64
`

const companionTree = `module: foo
  +--rw interfaces
     +--rw interface* [name]
        +--rw name     string
        +--ro speed?   uint64
`

const stateAugmentTree = `module: ext
  augment /if:interfaces/if:interface/if:state:
    +--ro extra?   string
`

const deprecatedStateAugmentTree = `module: ext
  augment /if:interfaces/if:interface/if:state:
    x--ro extra?   string
`
