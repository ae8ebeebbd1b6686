package chain

// JSON ABIs for the subset of each contract the faucet and admin tooling call.

const sbtABI = `[
 {"type":"function","name":"safeMint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"}],"outputs":[]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// tokenABI covers the ERC20 surface shared by PNT, mock USDT and GToken plus
// the test-only mint and faucet entry points.
const tokenABI = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
 {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"faucet","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"}],"outputs":[]},
 {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const accountFactoryABI = `[
 {"type":"function","name":"createAccount","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"getAddress","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
]`

const stakingABI = `[
 {"type":"function","name":"stake","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"availableBalance","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const communityProfileTuple = `{"name":"profile","type":"tuple","components":[
  {"name":"name","type":"string"},
  {"name":"ensName","type":"string"},
  {"name":"description","type":"string"},
  {"name":"website","type":"string"},
  {"name":"logoURI","type":"string"},
  {"name":"twitterHandle","type":"string"},
  {"name":"githubOrg","type":"string"},
  {"name":"telegramGroup","type":"string"},
  {"name":"xPNTsToken","type":"address"},
  {"name":"supportedSBTs","type":"address[]"},
  {"name":"mode","type":"uint8"},
  {"name":"nodeType","type":"uint8"},
  {"name":"paymasterAddress","type":"address"},
  {"name":"community","type":"address"},
  {"name":"registeredAt","type":"uint256"},
  {"name":"lastUpdatedAt","type":"uint256"},
  {"name":"isActive","type":"bool"},
  {"name":"memberCount","type":"uint256"},
  {"name":"allowPermissionlessMint","type":"bool"}
 ]}`

const registryABI = `[
 {"type":"function","name":"registerCommunity","stateMutability":"nonpayable","inputs":[` + communityProfileTuple + `,{"name":"stGTokenAmount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"getCommunityProfile","stateMutability":"view","inputs":[{"name":"communityAddress","type":"address"}],"outputs":[` + communityProfileTuple + `]},
 {"type":"function","name":"isRegisteredCommunity","stateMutability":"view","inputs":[{"name":"communityAddress","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"setPermissionlessMint","stateMutability":"nonpayable","inputs":[{"name":"enabled","type":"bool"}],"outputs":[]}
]`

const mySBTABI = `[
 {"type":"function","name":"userMint","stateMutability":"nonpayable","inputs":[{"name":"communityToJoin","type":"address"},{"name":"metadata","type":"string"}],"outputs":[{"name":"tokenId","type":"uint256"},{"name":"isNewMint","type":"bool"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"userToSBT","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getMemberships","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"tuple[]","components":[
  {"name":"community","type":"address"},
  {"name":"joinedAt","type":"uint256"},
  {"name":"lastActiveTime","type":"uint256"},
  {"name":"isActive","type":"bool"},
  {"name":"metadata","type":"string"}
 ]}]}
]`
